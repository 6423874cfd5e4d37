package jwt

import (
	"github.com/webitel/im-chat-hub/internal/service"
	"go.uber.org/fx"
)

var Module = fx.Module("jwt-auth",
	fx.Provide(
		NewFromConfig,
		func(v *Verifier) service.CredentialVerifier { return v },
	),
)
