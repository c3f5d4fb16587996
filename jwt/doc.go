// Package jwt encodes and decodes the signed access and refresh tokens used by
// leadAuth. Signature and expiry are always verified; there is no unverified
// decode. Verification keys are selected by kid so keys can be rolled over
// without invalidating tokens that are still live.
package jwt
