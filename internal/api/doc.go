// Package api is the local HTTP surface: the WebSocket push endpoint the
// browser tabs connect to, the logbook query and export API, manual
// action triggers, pause control, and settings. It binds to loopback; the
// game session cookie never transits this surface.
package api
