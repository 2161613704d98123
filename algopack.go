// Package algopack is the root of the MOEX ISS / AlgoPack toolkit.
//
// The reusable client lives under pkg/: pkg/iss speaks the ISS wire
// protocol (sessions, throttling, tabular decoding), pkg/moex layers
// market and instrument facades over it, and pkg/issplus streams the
// ISS+ real-time feed. The ingest daemon under cmd/ingest mirrors
// selected datasets into Postgres using the internal/ packages.
package algopack
