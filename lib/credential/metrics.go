package credential

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Issued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "botcha_credentials_issued",
		Help: "The total number of tokens minted",
	}, []string{"type", "provenance"})

	Verifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "botcha_credential_verifications",
		Help: "The total number of bearer token checks, by result",
	}, []string{"result"})

	RevocationErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "botcha_revocation_check_errors",
		Help: "The total number of revocation lookups that failed, by what the verifier did about it",
	}, []string{"policy"})

	Revocations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "botcha_credentials_revoked",
		Help: "The total number of tokens revoked",
	})
)
