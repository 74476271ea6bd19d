package netcode

import (
	"net/netip"
	"testing"
)

// mintConnectToken builds a fully sealed ConnectToken for use in tests,
// mirroring what an out-of-band token service would produce.
func mintConnectToken(t *testing.T, clientID uint64, serverAddrs []netip.AddrPort, protocolID, createTS, expireTS uint64, connectKey Key) ConnectToken {
	t.Helper()

	clientToServer, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	serverToClient, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}

	priv := &PrivateConnectToken{
		ClientID:        clientID,
		TimeoutSeconds:  5,
		ServerAddresses: serverAddrs,
		ClientToServer:  clientToServer,
		ServerToClient:  serverToClient,
	}

	xnonce, err := randomNonce24()
	if err != nil {
		t.Fatalf("randomNonce24: %v", err)
	}

	sealed, err := priv.EncodePrivate(protocolID, expireTS, xnonce, connectKey)
	if err != nil {
		t.Fatalf("EncodePrivate: %v", err)
	}

	return ConnectToken{
		VersionInfo:     VersionInfo,
		ProtocolID:      protocolID,
		CreateTimestamp: createTS,
		ExpireTimestamp: expireTS,
		XNonce:          xnonce,
		Data:            sealed,
	}
}

func TestValidateConnectTokenRoundTrip(t *testing.T) {
	connectKey, _ := GenerateKey()
	serverAddr := netip.MustParseAddrPort("127.0.0.1:40000")

	tok := mintConnectToken(t, 99, []netip.AddrPort{serverAddr}, 1, 1000, 2000, connectKey)

	priv, err := ValidateConnectToken(&tok, 1, connectKey, serverAddr, 1500)
	if err != nil {
		t.Fatalf("ValidateConnectToken: %v", err)
	}
	if priv.ClientID != 99 {
		t.Fatalf("ClientID = %d, want 99", priv.ClientID)
	}
	if priv.TimeoutSeconds != 5 {
		t.Fatalf("TimeoutSeconds = %d, want 5", priv.TimeoutSeconds)
	}
}

func TestValidateConnectTokenExpired(t *testing.T) {
	connectKey, _ := GenerateKey()
	serverAddr := netip.MustParseAddrPort("127.0.0.1:40000")
	tok := mintConnectToken(t, 1, []netip.AddrPort{serverAddr}, 1, 1000, 2000, connectKey)

	if _, err := ValidateConnectToken(&tok, 1, connectKey, serverAddr, 2001); err != ErrExpired {
		t.Fatalf("err = %v, want ErrExpired", err)
	}
}

func TestValidateConnectTokenWrongVersion(t *testing.T) {
	connectKey, _ := GenerateKey()
	serverAddr := netip.MustParseAddrPort("127.0.0.1:40000")
	tok := mintConnectToken(t, 1, []netip.AddrPort{serverAddr}, 1, 1000, 2000, connectKey)
	tok.VersionInfo[0] = 'X'

	if _, err := ValidateConnectToken(&tok, 1, connectKey, serverAddr, 1500); err != ErrInvalidVersion {
		t.Fatalf("err = %v, want ErrInvalidVersion", err)
	}
}

func TestValidateConnectTokenWrongKey(t *testing.T) {
	connectKey, _ := GenerateKey()
	otherKey, _ := GenerateKey()
	serverAddr := netip.MustParseAddrPort("127.0.0.1:40000")
	tok := mintConnectToken(t, 1, []netip.AddrPort{serverAddr}, 1, 1000, 2000, connectKey)

	if _, err := ValidateConnectToken(&tok, 1, otherKey, serverAddr, 1500); err != ErrInvalidToken {
		t.Fatalf("err = %v, want ErrInvalidToken", err)
	}
}

func TestValidateConnectTokenNotInHostList(t *testing.T) {
	connectKey, _ := GenerateKey()
	serverAddr := netip.MustParseAddrPort("127.0.0.1:40000")
	otherAddr := netip.MustParseAddrPort("127.0.0.1:40001")
	tok := mintConnectToken(t, 1, []netip.AddrPort{serverAddr}, 1, 1000, 2000, connectKey)

	if _, err := ValidateConnectToken(&tok, 1, connectKey, otherAddr, 1500); err != ErrNotInHostList {
		t.Fatalf("err = %v, want ErrNotInHostList", err)
	}
}

func TestAddrPortWireRoundTripIPv4AndIPv6(t *testing.T) {
	v4 := netip.MustParseAddrPort("203.0.113.5:1234")
	v6 := netip.MustParseAddrPort("[2001:db8::1]:4321")

	for _, want := range []netip.AddrPort{v4, v6} {
		b := appendAddrPort(nil, want)
		got, ok := readAddrPort(b)
		if !ok {
			t.Fatalf("readAddrPort(%v): not ok", want)
		}
		if got != want {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}
