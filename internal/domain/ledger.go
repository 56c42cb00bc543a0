package domain

// NetBalance is what b owes a across the approved subrogation claims between
// them: the approved amounts a claimed from b minus those b claimed from a.
// It is recomputed from the claims on every call and is antisymmetric:
// NetBalance(c, a, b) == -NetBalance(c, b, a).
func NetBalance(claims []SubrogationClaim, a, b string) Amount {
	var owedToA, owedToB Amount
	for _, c := range claims {
		if c.Status != SubrogationApproved {
			continue
		}
		switch {
		case c.ClaimantInsurer == a && c.RespondentInsurer == b:
			owedToA += c.Amount
		case c.ClaimantInsurer == b && c.RespondentInsurer == a:
			owedToB += c.Amount
		}
	}
	return owedToA - owedToB
}
