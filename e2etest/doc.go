// Package e2etest exercises the proxy end to end over loopback TCP.
package e2etest
