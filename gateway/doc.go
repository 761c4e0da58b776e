// Package gateway serves a running ringkit runtime over HTTP.
//
// Routes:
//
//	GET  /health                          aggregated health, 503 when unhealthy
//	GET  /api/v1/runtime                  service.Info as JSON
//	GET  /api/v1/channels                 per-channel stats as JSON
//	GET  /api/v1/channels/{channel}       held bytes of one channel, text/plain
//	POST /api/v1/channels/{channel}       append the body as one record
//	GET  /api/v1/channels/{channel}/tail  websocket stream of new records
//
// {channel} is a channel index or name. Snapshots do not consume bytes; only
// the runtime's flush drains channels. Every response carries X-Request-ID.
package gateway
