package normalize

// Kind tells the normalizer how to convert one argument.
type Kind int

const (
	// Raw values are left untouched.
	Raw Kind = iota
	// Wei values are 18 decimal fixed point. Arrays are summed.
	Wei
	// PercentWei values are percentages scaled by 1e16.
	PercentWei
	// TokenAmount uses the decimals of the emitting token contract.
	TokenAmount
	// Address values get an explorer link companion.
	Address
	// PubKey values get a beacon explorer link companion.
	PubKey
)

// Schema maps argument names to kinds for one event name.
type Schema map[string]Kind

// Schemas is the per event argument table.
type Schemas map[string]Schema

// DefaultSchemas covers the events the default configuration emits.
func DefaultSchemas() Schemas {
	transfer := Schema{"from": Address, "to": Address, "value": TokenAmount}
	return Schemas{
		"reth_transfer_event":                          transfer,
		"rpl_transfer_event":                           transfer,
		"reth_burn_event":                              {"from": Address, "amount": Wei, "ethAmount": Wei},
		"pool_deposit_event":                           {"from": Address, "amount": Wei},
		"pool_deposit_assigned_event":                  {"minipool": Address, "amount": Wei},
		"pool_deposit_assigned_single_event":           {"minipool": Address, "amount": Wei},
		"minipool_prestake_event":                      {"validatorPubkey": PubKey, "amount": Wei, "minipool": Address},
		"minipool_scrub_event":                         {"minipool": Address},
		"minipool_vacancy_prepared_event":              {"bondAmount": Wei, "currentBalance": Wei, "minipool": Address},
		"minipool_deposit_failed_event":                {"bondAmount": Wei, "minimumNodeFee": PercentWei, "validatorPubkey": PubKey, "expectedMinipoolAddress": Address, "from": Address},
		"odao_proposal_added_event":                    {"proposer": Address},
		"odao_proposal_vote_event":                     {"voter": Address},
		"odao_proposal_executed_event":                 {"executer": Address},
		"odao_proposal_execute_event":                  {"from": Address},
		"odao_proposal_invite_event":                   {"nodeAddress": Address},
		"odao_proposal_leave_event":                    {"nodeAddress": Address},
		"odao_proposal_kick_event":                     {"nodeAddress": Address, "rplFine": Wei},
		"pdao_proposal_submitted_event":                {"proposer": Address},
		"pdao_proposal_vote_event":                     {"voter": Address, "votingPower": Wei},
		"pdao_proposal_vote_overridden_event":          {"voter": Address, "delegate": Address, "votingPower": Wei},
		"pdao_proposal_executed_event":                 {"executor": Address},
		"pdao_proposal_execute_event":                  {"from": Address},
		"pdao_proposal_setting_address_event":          {"value": Address},
		"pdao_proposal_security_invite_event":          {"memberAddress": Address},
		"pdao_proposal_security_kick_event":            {"memberAddress": Address},
		"pdao_proposal_treasury_one_time_spend_event":  {"recipient": Address, "amount": Wei},
		"pdao_proposal_setting_rewards_claimers_event": {"trustedNodePercent": PercentWei, "protocolPercent": PercentWei, "nodePercent": PercentWei},
		"reth_ratio_decrease_event":                    {"totalEth": Wei, "stakingEth": Wei, "rethSupply": Wei},
		"price_update_event":                           {"rplPrice": Wei},
		"rewards_claimed_event":                        {"claimer": Address, "amountRPL": Wei, "amountETH": Wei},
		"steth_withdrawal_requested_event":             {"requestor": Address, "owner": Address, "amountOfStETH": Wei, "amountOfShares": Wei},
		"minipool_slash_event":                         {"node": Address, "minipool": Address},
		"mev_proposal_event":                           {"node": Address, "minipool": Address, "fee_recipient": Address},
		"mev_proposal_smoothie_event":                  {"node": Address, "minipool": Address, "fee_recipient": Address},
		"snapshot_vote_event":                          {"voter": Address},
		"snapshot_proposal_start_event":                {"author": Address},
		"snapshot_proposal_end_event":                  {"author": Address},
		"otc_order_event":                              {"owner": Address},
	}
}
