// Package match finds duplicate scenes by comparing audio and visual
// fingerprints and collapses candidate lists to the best match per scene.
package match
