// Package panel serves the classroom wall panel: a small browser dashboard
// showing the latest appliance state, live telemetry and recent rule
// firings, with buttons for the common semantic commands.
//
// The assets under web/ are embedded into the binary. A directory on disk
// can replace them while the page is being worked on. Unknown paths fall
// back to index.html; paths under /api/ never do.
package panel
