// Package httputil provides the HTTP plumbing shared by the preview API and
// plugin handlers.
//
// # Response Helpers
//
// Error responses carry a JSON body and the status mapped from the preview
// error taxonomy:
//
//	httputil.WriteError(w, httputil.StatusForError(err), err)
//	httputil.WriteBadRequest(w, "No path, file or url provided")
//
// # Request Parameters
//
// Param helpers read the merged query/form view, so POST bodies override
// query strings transparently:
//
//	width, err := httputil.ParamInt(r, "width", cfg.DefaultWidth)
//	format := httputil.Param(r, "format", cfg.DefaultFormat)
//
// # Middleware
//
//	httputil.Chain(
//		httputil.RequestIDMiddleware,
//		httputil.LoggingMiddleware(logger, level),
//		httputil.RecoveryMiddleware(logger),
//		httputil.MaxBytesMiddleware(maxBody),
//	)
package httputil
