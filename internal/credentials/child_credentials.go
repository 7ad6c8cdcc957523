package credentials

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
)

// Word pools for child usernames. Lower-case letters only.
var adjectives = []string{
	"amber", "brave", "breezy", "bubbly", "calm", "comet", "cosy", "crimson",
	"dapper", "dazzle", "fizzy", "fluffy", "frosty", "giddy", "golden", "handy",
	"humble", "icy", "jumpy", "kind", "lucky", "mellow", "minty", "nifty",
	"peppy", "plucky", "polar", "proud", "rapid", "rusty", "silver", "sparky",
	"speedy", "steady", "sunny", "tidy", "tiny", "velvet", "witty", "zesty",
}

var nouns = []string{
	"acorn", "badger", "beacon", "beetle", "bison", "boulder", "cactus", "canyon",
	"cricket", "falcon", "ferret", "gecko", "glacier", "harbor", "heron", "iguana",
	"jaguar", "kestrel", "koala", "lantern", "lemur", "llama", "maple", "meteor",
	"narwhal", "otter", "owl", "pebble", "penguin", "puffin", "quokka", "raccoon",
	"sparrow", "squirrel", "sprout", "toucan", "turtle", "volcano", "walrus", "yak",
}

// Family codes skip 0/O and 1/I so they can be read aloud
const familyCodeChars = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const (
	PINLength        = 4
	FamilyCodeLength = 6

	// plain adjective-noun attempts before a numeric suffix is added
	plainUsernameAttempts = 10
	maxUsernameAttempts   = 50
)

// ErrNoUniqueUsername is returned when every generated username was taken
var ErrNoUniqueUsername = errors.New("could not generate a unique username")

// GenerateChildUsername generates a random username in the format "adjective-noun"
func GenerateChildUsername() (string, error) {
	adjective, err := randomElement(adjectives)
	if err != nil {
		return "", err
	}

	noun, err := randomElement(nouns)
	if err != nil {
		return "", err
	}

	return adjective + "-" + noun, nil
}

// UniqueChildUsername generates usernames until taken reports one as free.
// After a few collisions a two digit suffix is appended.
func UniqueChildUsername(ctx context.Context, taken func(ctx context.Context, username string) (bool, error)) (string, error) {
	for attempt := 0; attempt < maxUsernameAttempts; attempt++ {
		username, err := GenerateChildUsername()
		if err != nil {
			return "", err
		}
		if attempt >= plainUsernameAttempts {
			n, err := rand.Int(rand.Reader, big.NewInt(90))
			if err != nil {
				return "", err
			}
			username = fmt.Sprintf("%s%d", username, n.Int64()+10)
		}

		exists, err := taken(ctx, username)
		if err != nil {
			return "", err
		}
		if !exists {
			return username, nil
		}
	}
	return "", ErrNoUniqueUsername
}

// GeneratePIN generates a random numeric PIN for child login
func GeneratePIN() (string, error) {
	return randomString("0123456789", PINLength)
}

// GenerateFamilyCode generates the code co-parents use to join a family
func GenerateFamilyCode() (string, error) {
	return randomString(familyCodeChars, FamilyCodeLength)
}

func randomString(chars string, length int) (string, error) {
	out := make([]byte, length)
	for i := 0; i < length; i++ {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(chars))))
		if err != nil {
			return "", err
		}
		out[i] = chars[num.Int64()]
	}
	return string(out), nil
}

// randomElement picks a random element from a string slice
func randomElement(slice []string) (string, error) {
	if len(slice) == 0 {
		return "", nil
	}

	num, err := rand.Int(rand.Reader, big.NewInt(int64(len(slice))))
	if err != nil {
		return "", err
	}

	return slice[num.Int64()], nil
}
