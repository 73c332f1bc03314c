/*
Package log provides structured logging for all confsys components.

One root zerolog logger is configured at startup from the settings file.
Components derive tagged children from it: WithComponent for general
subsystems, ForTransport for per-socket resolver logs (transport kind and
server address), and ForZone for DNS-SD update logs.
*/
package log
