// Package logging provides leveled printf-style logging for atelier.
//
// Levels are DEBUG, INFO, WARN and ERROR; Fatal always prints and exits.
// The initial level comes from DEBUG or LOG_LEVEL in the environment and
// may be overridden by Configure, which can also tee output into a
// rotated log file.
package logging
