package util

import "math/rand"

const labelBytes = "abcdefghijklmnopqrstuvwxyz0123456789"

// RandomLabel returns a lowercase alphanumeric label suffix of length n,
// used to give each launched runner a unique label.
func RandomLabel(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = labelBytes[rand.Intn(len(labelBytes))]
	}
	return string(b)
}
