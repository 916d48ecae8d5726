// Package seriesio reads acquisition stacks from disk and writes detection
// products back out. Both JSON and MessagePack encodings are supported;
// the format is chosen by file extension.
package seriesio
