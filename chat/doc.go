// Package chat connects to Twitch chat and feeds the last-message cache.
//
// It provides two pieces:
//   - Ingester: turns normalized (sender, text, isSelf) events into cache
//     writes, dropping messages the bot sent itself.
//   - Listener: owns the go-twitch-irc connection for a single channel,
//     dispatches PRIVMSG events to the Ingester and reconnects with
//     exponential backoff when the connection drops.
//
// Credentials: the IRC client requires the bot login and a user OAuth token
// with the chat:read scope. When a refresh token and client credentials are
// configured the token is refreshed on every reconnect as needed.
package chat
