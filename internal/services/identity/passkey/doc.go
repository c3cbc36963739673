// Package passkey runs WebAuthn registration and assertion ceremonies and
// owns signature-counter clone detection over stored credentials.
package passkey
