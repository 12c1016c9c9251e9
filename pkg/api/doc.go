// Package api is the HTTP surface of the preview service. It exposes the
// preview endpoint, the supported-extension listing, an upload test page,
// the metrics endpoint and health probes, and mounts path-resolver plugins
// on their declared routes.
//
// Handlers translate HTTP into preview requests and hand them to the
// coordinator; all pipeline policy (store, pools, icon fallback) lives
// there. Responses follow the pipeline's error taxonomy: caller mistakes
// are 400s, a missing input is a 404, everything else is a 500 with a JSON
// error body.
package api
