// Package crypto encrypts secret preference values at rest with AES-256-GCM.
package crypto
