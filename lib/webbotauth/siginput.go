package webbotauth

import (
	"fmt"

	"github.com/dunglas/httpsfv"
)

// TagWebBotAuth is the tag parameter Web Bot Auth signers set.
const TagWebBotAuth = "web-bot-auth"

// signatureInput is one labelled entry of Signature-Input.
type signatureInput struct {
	label      string
	components []string
	params     string // canonical serialization, the @signature-params value

	keyID   string
	alg     string
	tag     string
	created int64
	expires int64
}

func malformed(field string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrMalformedHeader, field, err)
}

// paramsOf returns the value of parameter key, or nil when it is absent.
func paramsOf(p *httpsfv.Params, key string) any {
	if p == nil {
		return nil
	}

	v, _ := p.Get(key)
	return v
}

// parseSignatureInput reads every labelled entry of the Signature-Input
// field lines, in header order.
func parseSignatureInput(lines []string) ([]signatureInput, error) {
	dict, err := httpsfv.UnmarshalDictionary(lines)
	if err != nil {
		return nil, malformed("Signature-Input", err)
	}

	result := make([]signatureInput, 0, len(dict.Names()))

	for _, label := range dict.Names() {
		member, _ := dict.Get(label)

		list, ok := member.(httpsfv.InnerList)
		if !ok {
			return nil, fmt.Errorf("%w: Signature-Input %s is not an inner list", ErrMalformedHeader, label)
		}

		params, err := httpsfv.Marshal(httpsfv.List{list})
		if err != nil {
			return nil, malformed("Signature-Input "+label, err)
		}

		in := signatureInput{
			label:  label,
			params: params,
		}

		for _, item := range list.Items {
			name, ok := item.Value.(string)
			if !ok {
				return nil, fmt.Errorf("%w: Signature-Input %s: component is not a string", ErrMalformedHeader, label)
			}

			if item.Params != nil && len(item.Params.Names()) != 0 {
				return nil, fmt.Errorf("%w: %s with parameters", ErrUnsupportedComponent, name)
			}

			in.components = append(in.components, name)
		}

		in.keyID, _ = paramsOf(list.Params, "keyid").(string)
		in.alg, _ = paramsOf(list.Params, "alg").(string)
		in.tag, _ = paramsOf(list.Params, "tag").(string)
		in.created, _ = paramsOf(list.Params, "created").(int64)
		in.expires, _ = paramsOf(list.Params, "expires").(int64)

		result = append(result, in)
	}

	return result, nil
}

func parseSignatures(lines []string) (map[string][]byte, error) {
	dict, err := httpsfv.UnmarshalDictionary(lines)
	if err != nil {
		return nil, malformed("Signature", err)
	}

	result := make(map[string][]byte, len(dict.Names()))
	for _, label := range dict.Names() {
		member, _ := dict.Get(label)

		item, ok := member.(httpsfv.Item)
		if !ok {
			return nil, fmt.Errorf("%w: Signature %s is not an item", ErrMalformedHeader, label)
		}

		sig, ok := item.Value.([]byte)
		if !ok {
			return nil, fmt.Errorf("%w: Signature %s is not a byte sequence", ErrMalformedHeader, label)
		}

		result[label] = sig
	}

	return result, nil
}

// pickSignature chooses which labelled signature to check: the first one
// tagged web-bot-auth, else the first one that has a matching signature.
func pickSignature(inputs []signatureInput, sigs map[string][]byte) (*signatureInput, []byte, bool) {
	var fallback *signatureInput

	for i := range inputs {
		in := &inputs[i]
		if _, ok := sigs[in.label]; !ok {
			continue
		}

		if in.tag == TagWebBotAuth {
			return in, sigs[in.label], true
		}

		if fallback == nil {
			fallback = in
		}
	}

	if fallback == nil {
		return nil, nil, false
	}

	return fallback, sigs[fallback.label], true
}
