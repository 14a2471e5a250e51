// Package middleware provides the HTTP middleware for identity resolution,
// access levels, and throttling.
//
// # Identity
//
// IdentityMiddleware verifies the bearer token, when one is sent, and stores
// the resulting auth.Principal in the request context. It never rejects a
// request. Access is enforced per route:
//
//	router.Use(middleware.NewIdentityMiddleware(codec, logger).Handler)
//	authenticated := middleware.RequirePrincipal(handler)
//	admin := middleware.RequireAdmin(gate, logger)(handler)
//
// RequirePrincipal answers 401 without a principal. RequireAdmin answers 401
// without a principal and 403 for non-administrators.
//
// # Rate Limiting
//
// RateLimitMiddleware throttles by client address using any Limiter:
//
//	limiter := middleware.NewRateLimiter(middleware.IdentifyRateLimitConfig())
//	throttled := middleware.NewRateLimitMiddleware(limiter, cfg, "identify", logger).Handler(h)
//
// RateLimiter keeps token buckets in memory. DistributedRateLimiter counts
// fixed windows in Redis and is used when Redis is configured. Limiter
// errors fail open.
package middleware
