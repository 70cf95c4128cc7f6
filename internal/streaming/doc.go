// Package streaming protects long media responses from stalled clients.
//
// Media files are served without a server-wide write timeout, since a
// large file may legitimately take hours to download. Writer instead
// extends the connection's write deadline before every chunk, so a client
// that stops reading is dropped after WriteTimeout while a slow but steady
// one is served to the end. MaxDuration optionally caps a whole response.
//
// Deadlines are set through http.ResponseController; middleware wrapping
// the response must implement Unwrap for them to reach the connection.
// Where no deadline can be set the writer degrades to a plain pass-through.
package streaming
