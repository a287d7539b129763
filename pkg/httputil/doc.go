// Package httputil provides small helpers for JSON request decoding and
// standardized JSON responses.
//
// Response helpers:
//
//	httputil.WriteJSON(w, http.StatusOK, data)
//	httputil.WriteCreated(w, resource)
//	httputil.WriteBadRequest(w, "invalid input")
//
// Request helpers:
//
//	var req createSellerRequest
//	if !httputil.ParseJSONOrError(w, r, &req) {
//		return
//	}
//	id, ok := httputil.ParsePathStringOrError(w, r, "seller_id")
//
// Authorization failures do not go through this package; the middleware
// package maps error kinds onto status codes in one place.
package httputil
