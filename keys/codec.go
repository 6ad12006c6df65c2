package keys

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"unicode/utf8"

	"github.com/fxamacker/cbor/v2"
)

// pathElement is one level of an encoded key path.
type pathElement struct {
	_    struct{} `cbor:",toarray"`
	Kind string
	Name string
	ID   int64
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("keys: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{
		MaxArrayElements: 16,
		DupMapKey:        cbor.DupMapKeyEnforcedAPF,
	}.DecMode()
	if err != nil {
		panic("keys: CBOR decoder initialization failed: " + err.Error())
	}
}

func (k Key) path() ([]pathElement, error) {
	if k.IsZero() {
		return nil, fmt.Errorf("cannot encode incomplete key %s", k)
	}
	if !utf8.ValidString(k.UserID) {
		return nil, fmt.Errorf("cannot encode key %s: user ID is not valid UTF-8", k)
	}
	root := pathElement{Kind: KindProfile, Name: k.UserID}
	if k.Kind == KindProfile {
		return []pathElement{root}, nil
	}
	return []pathElement{root, {Kind: KindConference, ID: k.ID}}, nil
}

// Encode returns the websafe string form of k.
func Encode(k Key) (string, error) {
	path, err := k.path()
	if err != nil {
		return "", err
	}
	raw, err := encMode.Marshal(path)
	if err != nil {
		return "", fmt.Errorf("encode key %s: %w", k, err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// MustEncode is Encode for keys known to be complete.
func MustEncode(k Key) string {
	s, err := Encode(k)
	if err != nil {
		panic(err)
	}
	return s
}

// Decode parses a websafe key string. Any input that Encode would not
// produce for a Profile or Conference key yields ErrMalformedKey.
func Decode(s string) (Key, error) {
	if s == "" {
		return Key{}, fmt.Errorf("%w: empty", ErrMalformedKey)
	}
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return Key{}, fmt.Errorf("%w: %v", ErrMalformedKey, err)
	}
	var path []pathElement
	if err := decMode.Unmarshal(raw, &path); err != nil {
		return Key{}, fmt.Errorf("%w: %v", ErrMalformedKey, err)
	}
	k, err := keyFromPath(path)
	if err != nil {
		return Key{}, err
	}
	// Reject non-canonical spellings of a valid path.
	canonical, err := encMode.Marshal(path)
	if err != nil || !bytes.Equal(canonical, raw) {
		return Key{}, fmt.Errorf("%w: non-canonical encoding", ErrMalformedKey)
	}
	return k, nil
}

func keyFromPath(path []pathElement) (Key, error) {
	if len(path) == 0 || len(path) > 2 {
		return Key{}, fmt.Errorf("%w: path length %d", ErrMalformedKey, len(path))
	}
	root := path[0]
	if root.Kind != KindProfile || root.Name == "" || root.ID != 0 {
		return Key{}, fmt.Errorf("%w: bad root element", ErrMalformedKey)
	}
	if len(path) == 1 {
		return ProfileKey(root.Name), nil
	}
	leaf := path[1]
	if leaf.Kind != KindConference || leaf.Name != "" || leaf.ID <= 0 {
		return Key{}, fmt.Errorf("%w: bad conference element", ErrMalformedKey)
	}
	return Key{Kind: KindConference, UserID: root.Name, ID: leaf.ID}, nil
}
