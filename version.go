package fastmssql

// libraryVersion is reported to the server through the application name
// unless the caller overrides it.
const libraryVersion = "v0.4.0"

// defaultAppName identifies pooled connections in sys.dm_exec_sessions.
const defaultAppName = "fastmssql " + libraryVersion
