// Package botcha contains the version number of BOTCHA and the constants
// shared between its packages.
package botcha

import "time"

// Version is the current version of BOTCHA.
//
// This variable is set at build time using the -X linker flag. If not set,
// it defaults to "devel".
var Version = "devel"

// APIPrefix is the URL prefix every BOTCHA API route lives under.
const APIPrefix = "/v1/"

// Request headers used by the challenge exchange.
const (
	HeaderChallengeID = "X-Botcha-Challenge-Id"
	HeaderAnswers     = "X-Botcha-Answers"
	HeaderAudience    = "X-Botcha-Audience"
	HeaderBindIP      = "X-Botcha-Bind-Ip"
)

// Web Bot Auth request headers.
const (
	HeaderSignatureAgent = "Signature-Agent"
	HeaderSignature      = "Signature"
	HeaderSignatureInput = "Signature-Input"
)

// Credential lifetimes used when the configuration does not override them.
const (
	DefaultAccessTokenExpiration  = 5 * time.Minute
	DefaultRefreshTokenExpiration = time.Hour
)

// DefaultDirectoryTimeout bounds the agent directory fetch done for Web Bot Auth.
const DefaultDirectoryTimeout = 5 * time.Second
