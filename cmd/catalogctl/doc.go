// Command catalogctl performs offline maintenance on a media library
// catalog file: inspecting counts and pending artifact work, or wiping
// the catalog entirely.
package main
