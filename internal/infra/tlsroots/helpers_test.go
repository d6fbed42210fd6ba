package tlsroots

import (
	"crypto/tls"
	"net"
	"time"
)

// handshake runs both sides of a TLS handshake over loopback TCP and
// returns the server's view of the connection.
func handshake(serverCfg, clientCfg *tls.Config) (tls.ConnectionState, error, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return tls.ConnectionState{}, err, err
	}
	defer ln.Close()

	clientErr := make(chan error, 1)
	go func() {
		conn, err := tls.DialWithDialer(&net.Dialer{Timeout: 5 * time.Second}, "tcp", ln.Addr().String(), clientCfg)
		if err != nil {
			clientErr <- err
			return
		}
		defer conn.Close()
		clientErr <- nil
		// Keep the connection open until the server side is done.
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		conn.Read(make([]byte, 1))
	}()

	raw, err := ln.Accept()
	if err != nil {
		return tls.ConnectionState{}, err, <-clientErr
	}
	defer raw.Close()

	srv := tls.Server(raw, serverCfg)
	srv.SetDeadline(time.Now().Add(5 * time.Second))
	serverErr := srv.Handshake()
	return srv.ConnectionState(), serverErr, <-clientErr
}
