// Package server accepts client connections over tcp, unix or stdio transports.
package server
