// Package mail renders token notifications into emails and delivers them
// over SMTP.
package mail
