package netcode

import "encoding/binary"

// GenerateChallengeToken seals {client_id, user_data} under challengeKey,
// with a nonce derived from sequence (which the caller must never reuse
// under the same key), producing the value carried in a Challenge packet.
func GenerateChallengeToken(clientID uint64, userData [userDataBytes]byte, sequence uint64, challengeKey Key) (EncryptedChallengeToken, error) {
	plaintext := make([]byte, 0, challengeTokenPlainBytes)
	plaintext = binary.LittleEndian.AppendUint64(plaintext, clientID)
	plaintext = append(plaintext, userData[:]...)

	var nonce [24]byte
	copy(nonce[:], nonceFromSequence(sequence, 24))

	sealed, err := sealToken(challengeKey, nonce, nil, plaintext)
	if err != nil {
		return EncryptedChallengeToken{}, err
	}
	return EncryptedChallengeToken{Sequence: sequence, Data: sealed}, nil
}

// DecodeChallengeToken is the inverse of GenerateChallengeToken: it verifies
// and opens a Response packet's challenge token under challengeKey, which
// never leaves the server.
func DecodeChallengeToken(token EncryptedChallengeToken, challengeKey Key) (clientID uint64, userData [userDataBytes]byte, err error) {
	var nonce [24]byte
	copy(nonce[:], nonceFromSequence(token.Sequence, 24))

	plaintext, err := openToken(challengeKey, nonce, nil, token.Data)
	if err != nil {
		return 0, userData, err
	}
	if len(plaintext) != challengeTokenPlainBytes {
		return 0, userData, ErrCryptoFailed
	}

	clientID = binary.LittleEndian.Uint64(plaintext)
	copy(userData[:], plaintext[8:])
	return clientID, userData, nil
}
