// Package confloader loads memmesh configuration through koanf.
//
// Values are layered, strongest last: in-memory defaults, then the
// YAML config file, then MEMMESH_-prefixed environment variables
// (MEMMESH_SERVER_RPC_ADDR maps to server.rpc_addr). The Watcher
// reports config file changes so the server can hot-reload.
//
// Files:
//
//   - loader.go: the layered Loader
//   - provider.go: koanf provider for the defaults map
//   - watcher.go: fsnotify-backed change watcher
package confloader
