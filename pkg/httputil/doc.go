// Package httputil provides HTTP utilities for standardized request/response handling.
//
// # Response Helpers
//
// Success responses carry "success": true:
//
//	httputil.WriteOK(w, httputil.Body{"pot": pot})
//	httputil.WriteCreated(w, httputil.Body{"id": id})
//
// Errors are written as {"error": message}. Service errors are mapped by
// their apperr kind:
//
//	if err != nil {
//		httputil.WriteAppError(w, r, logger, err)
//		return
//	}
//
// # Request Parsing
//
//	var req createPotRequest
//	if err := httputil.ParseJSON(r, &req); err != nil { ... }
//	id, err := httputil.PathInt64(r, "id")
//	page, err := httputil.QueryInt(r, "page", 1)
//
// # Middleware
//
//	httputil.Chain(
//		httputil.RequestIDMiddleware,
//		httputil.LoggingMiddleware(logger),
//		httputil.RecoveryMiddleware(logger),
//		httputil.CORSMiddleware(origins),
//	)
//
// # Related Packages
//
//   - pkg/middleware: Identity resolution, access gates and rate limiting
package httputil
