package netcode

import "testing"

func TestChallengeTokenRoundTrip(t *testing.T) {
	key, _ := GenerateKey()
	var userData [userDataBytes]byte
	userData[0] = 0x42

	tok, err := GenerateChallengeToken(123, userData, 1, key)
	if err != nil {
		t.Fatalf("GenerateChallengeToken: %v", err)
	}

	clientID, got, err := DecodeChallengeToken(tok, key)
	if err != nil {
		t.Fatalf("DecodeChallengeToken: %v", err)
	}
	if clientID != 123 {
		t.Fatalf("clientID = %d, want 123", clientID)
	}
	if got != userData {
		t.Fatal("user data mismatch")
	}
}

func TestChallengeTokenWrongKeyFails(t *testing.T) {
	key, _ := GenerateKey()
	other, _ := GenerateKey()
	var userData [userDataBytes]byte

	tok, err := GenerateChallengeToken(1, userData, 1, key)
	if err != nil {
		t.Fatalf("GenerateChallengeToken: %v", err)
	}
	if _, _, err := DecodeChallengeToken(tok, other); err == nil {
		t.Fatal("expected error decoding challenge token under the wrong key")
	}
}

func TestChallengeTokenWrongSequenceFails(t *testing.T) {
	key, _ := GenerateKey()
	var userData [userDataBytes]byte

	tok, err := GenerateChallengeToken(1, userData, 1, key)
	if err != nil {
		t.Fatalf("GenerateChallengeToken: %v", err)
	}
	tok.Sequence = 2
	if _, _, err := DecodeChallengeToken(tok, key); err == nil {
		t.Fatal("expected error decoding challenge token with mismatched sequence nonce")
	}
}
