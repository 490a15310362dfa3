// Package transport provides the framed, bidirectional channel between the
// engine manager and its engine process. The manager binds an address and the
// engine connects back to it; each message travels as one length-prefixed frame.
//
// Addresses are connection strings with a scheme prefix naming the socket type:
//
//	ipc://<path>        unix-domain stream socket
//	tcp://<host:port>   TCP, for hosts without unix sockets
//	vsock://<port>      AF_VSOCK, for engines running inside a microVM
package transport
