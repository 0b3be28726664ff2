// Package internal contains the implementation packages of previewd.
//
// # Package Organization
//
// The internal packages are organized by functional domain:
//
//   - pipeline: ordered handler chain answering every site request
//   - render: on-demand page renders through an external worker pool
//   - diagnostics: stack decoding, source excerpts and the error page
//   - pages: the set of renderable page paths, read from the build manifest
//   - livereload: websocket channel telling browsers to reload
//   - server: chi router, built-in endpoints and process lifecycle
//   - config: viper-backed configuration snapshot and its validation
//   - editor: opening a stack frame's file in the developer's editor
//   - metrics: Prometheus collectors for dispatch, renders and the proxy
//   - watcher: fsnotify wrapper with filtering and debouncing
//   - errors, logging, validation, version: shared support code
//
// # Request Flow
//
// The server answers /__health, /__metrics and /__livereload itself and
// hands everything else to the pipeline. The pipeline offers the request to
// each handler in priority order; the first to claim it writes the
// response, and an unclaimed request ends in a 404.
package internal
