// Package twitchapi wraps the Twitch identity endpoints the chat listener needs:
// producing IRC user tokens (static or refreshed via golang.org/x/oauth2) and
// validating which login a token belongs to.
package twitchapi
