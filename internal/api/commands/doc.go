// Package commands is the hot-exit operation surface shared by the HTTP API
// and the developer CLI. It pairs the coordinator with the session store:
// capture persists what it collects, and a restore of the saved session
// deletes the file once every window reports completion.
package commands
