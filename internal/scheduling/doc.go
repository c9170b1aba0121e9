// Package scheduling turns slash-command invocations into replies.
//
// Invocations are decided once at the boundary (Parse) into a closed set of
// variants and then matched exhaustively by Handler.Respond. Only schedule
// has a backing action (a Trello card); end, edit and cancel reply with
// placeholders.
package scheduling
