package model

const (
	MethodCard  = "card"
	MethodPhone = "phone"
)

var bankNames = map[string]string{
	"sber":    "Сбербанк",
	"tinkoff": "Т-Банк",
	"alfa":    "Альфа-Банк",
	"vtb":     "ВТБ",
}

// BankDisplayName maps a bank code to its display name. Unknown codes are
// shown as given.
func BankDisplayName(code string) string {
	if name, ok := bankNames[code]; ok {
		return name
	}
	return code
}

// NormalizeMethod returns MethodPhone for "phone" and MethodCard otherwise.
func NormalizeMethod(m string) string {
	if m == MethodPhone {
		return MethodPhone
	}
	return MethodCard
}

// MethodDisplayName is the human label for a payout method.
func MethodDisplayName(m string) string {
	if m == MethodPhone {
		return "phone number"
	}
	return "card number"
}
