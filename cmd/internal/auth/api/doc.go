// Package authapi exposes registration, login and session lifecycle over
// HTTP. Token pairs travel as httpOnly cookies for browsers and are echoed
// in response bodies for native clients.
package authapi
