package rpc

import (
	"net"
	"testing"
)

func TestHandleRequestsEmitsRequestThenDoneOnEOF(t *testing.T) {
	server, client := net.Pipe()
	inbox := make(chan Message, 10)

	go func() {
		client.Write([]byte(`{"id":1,"method":"server.ping","params":[]}` + "\n"))
		client.Close()
	}()

	err := handleRequests(server, inbox)
	if err != nil {
		t.Fatalf("handleRequests: %v", err)
	}

	msg1 := <-inbox
	if _, ok := msg1.(RequestMsg); !ok {
		t.Fatalf("first message = %T, want RequestMsg", msg1)
	}
	msg2 := <-inbox
	if _, ok := msg2.(DoneMsg); !ok {
		t.Fatalf("second message = %T, want DoneMsg", msg2)
	}
}

func TestHandleRequestsRejectsTLSClientHello(t *testing.T) {
	server, client := net.Pipe()
	inbox := make(chan Message, 10)

	go func() {
		client.Write([]byte{0x16, 0x03, 0x01, 0x00, 0x05, 'h', 'e', 'l', 'l', 'o', '\n'})
		client.Close()
	}()

	err := handleRequests(server, inbox)
	if err == nil {
		t.Fatal("expected an error for a TLS ClientHello prefix")
	}
	msg := <-inbox
	if _, ok := msg.(DoneMsg); !ok {
		t.Fatalf("message = %T, want DoneMsg", msg)
	}
}

func TestHandleRequestsRejectsInvalidUTF8(t *testing.T) {
	server, client := net.Pipe()
	inbox := make(chan Message, 10)

	go func() {
		client.Write([]byte{0xff, 0xfe, 0xfd, '\n'})
		client.Close()
	}()

	err := handleRequests(server, inbox)
	if err == nil {
		t.Fatal("expected an error for invalid UTF-8")
	}
	msg := <-inbox
	if _, ok := msg.(DoneMsg); !ok {
		t.Fatalf("message = %T, want DoneMsg", msg)
	}
}
