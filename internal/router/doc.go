// Package router builds and maintains the per-track signal graphs:
//
//	source -> [splitter -> left/right gain] | gain -> merger -> master gain -> device
//
// Graphs persist across file loads into the same slot and carry their
// routing (device, channel per side, gain) over to the rebuilt graph.
// Mergers are sized to the larger of the device channel count and a
// floor, with explicit, discrete channel interpretation so no implicit
// downmix happens between a gain stage and its output channel.
package router
