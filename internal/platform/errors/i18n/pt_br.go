package i18n

var ptBRCatalog = &Catalog{
	locale: "pt-BR",
	messages: map[Code]string{
		CodeUnknown: "Algo deu errado",

		CodeSessionTitleEmpty:       "O título da sessão não pode ficar vazio",
		CodeSessionCodeInvalid:      "O código da sessão deve ter 4 dígitos",
		CodeSessionVerseInvalid:     "A estrofe {{.Verse}} não é válida",
		CodeSessionHymnEmpty:        "Escolha um hino antes de transmitir",
		CodeSessionScheduleInvalid:  "O término agendado deve ser depois do início",
		CodeSessionLeaderMissing:    "É preciso entrar com uma conta para criar uma sessão",
		CodeParticipantIDEmpty:      "O participante é obrigatório",
		CodeSessionPasswordRejected: "Esta senha não pode ser usada",
		CodeFrameInvalid:            "Não foi possível ler a solicitação",

		CodeSessionNotFound:     "Sessão não encontrada",
		CodeParticipantNotFound: "Participante não encontrado nesta sessão",
		CodeMembershipNotJoined: "Entre em uma sessão primeiro",

		CodeSessionJoinRejected:          "Código da sessão ou senha inválidos",
		CodeSessionBroadcastForbidden:    "Somente o dirigente ou um codirigente pode alterar a sessão",
		CodeSessionLeaderOnly:            "Somente o dirigente da sessão pode fazer isso",
		CodeParticipantLeaderProtected:   "O dirigente da sessão não pode ser alterado nem removido",
		CodeParticipantFollowUnavailable: "Dirigentes e codirigentes não têm modo de acompanhamento",
		CodeIdentityRequired:             "Entre com sua conta para continuar",

		CodeSessionCodeExhausted:    "Não foi possível gerar um código de sessão, tente novamente",
		CodeMembershipAlreadyActive: "Você já está em uma sessão, saia dela primeiro",
		CodeSessionInactive:         "Esta sessão foi encerrada",
		CodeDisplayLocked:           "Desative o acompanhamento para navegar por conta própria",

		CodeTransportUnavailable: "A conexão com a sessão foi interrompida",
		CodeStorageUnavailable:   "O serviço de sessões está temporariamente indisponível",
		CodeFrameRateLimited:     "Muitas solicitações, aguarde um momento",
	},
}
