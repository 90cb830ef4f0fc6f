package guides

import "github.com/ruianderson/sts-proxy/pkg/params"

func builtinGuides() []Guide {
	return []Guide{
		{
			Action: "check_balance",
			Input: []Pair{
				{External: "number", Internal: "Card_Number"},
			},
			Output: []Pair{
				{External: "Amount_Balance", Internal: "balance"},
			},
			Protocol: params.Of("Action_Code", "05"),
		},
		{
			Action: "capture",
			Input: []Pair{
				{External: "payment_id", Internal: "DEPRECATED_Transaction_ID"},
				{External: "reference_id", Internal: "Transaction_ID"},
				{External: "amount", Internal: "Transaction_Amount"},
				{External: "number", Internal: "Card_Number"},
			},
		},
	}
}

// Builtin returns the guides compiled into the binary.
func Builtin() *Registry {
	reg, err := New(builtinGuides()...)
	if err != nil {
		panic("guides: invalid built-in guides: " + err.Error())
	}
	return reg
}
