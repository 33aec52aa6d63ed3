package render

// DefaultSpecs holds the card layouts of the default event set.
func DefaultSpecs() map[string]Spec {
	return map[string]Spec{
		"reth_transfer_event": {
			Title:       "Large rETH Transfer",
			Description: `{{ .from_fancy }} transferred **{{ amount .value }} rETH** to {{ .to_fancy }}`,
			Color:       ColorInfo,
		},
		"rpl_transfer_event": {
			Title:       "Large RPL Transfer",
			Description: `{{ .from_fancy }} transferred **{{ amount .value }} RPL** to {{ .to_fancy }}`,
			Color:       ColorInfo,
			Fields:      []FieldSpec{{Name: "Value", Value: `{{ if .value_eth }}{{ amount .value_eth }} ETH{{ end }}`, Inline: true}},
		},
		"reth_burn_event": {
			Title:       "rETH Burned",
			Description: `{{ .from_fancy }} burned **{{ amount .amount }} rETH** for **{{ amount .ethAmount }} ETH**`,
			Color:       ColorWarn,
		},
		"pool_deposit_event": {
			Title:       "Deposit Pool Deposit",
			Description: `{{ .from_fancy }} deposited **{{ amount .amount }} ETH** into the deposit pool`,
			Color:       ColorGood,
		},
		"pool_deposit_assigned_event": {
			Title:       "Deposits Assigned",
			Description: `**{{ .assignmentCount }}** minipools were assigned **{{ amount .amount }} ETH** from the deposit pool`,
			Color:       ColorGood,
		},
		"pool_deposit_assigned_single_event": {
			Title:       "Deposit Assigned",
			Description: `Minipool {{ .minipool_fancy }} was assigned **{{ amount .amount }} ETH** from the deposit pool`,
			Color:       ColorGood,
		},
		"minipool_prestake_event": {
			Title:       "Minipool Prestaked",
			Description: `Minipool {{ .minipool_fancy }} prestaked **{{ amount .amount }} ETH** for validator {{ .validatorPubkey_fancy }}`,
			Color:       ColorGood,
		},
		"minipool_scrub_event": {
			Title:       "Minipool Scrubbed",
			Description: `Minipool {{ .minipool_fancy }} was scrubbed by the Oracle DAO`,
			Color:       ColorBad,
		},
		"minipool_vacancy_prepared_event": {
			Title:       "Vacant Minipool Prepared",
			Description: `Minipool {{ .minipool_fancy }} is migrating a validator with a **{{ amount .bondAmount }} ETH** bond and **{{ amount .currentBalance }} ETH** balance`,
			Color:       ColorInfo,
		},
		"minipool_deposit_failed_event": {
			Title:       "Failed Node Deposit",
			Description: `{{ .from_fancy }} attempted a **{{ amount .bondAmount }} ETH** node deposit that reverted`,
			Color:       ColorBad,
			Fields: []FieldSpec{
				{Name: "Validator", Value: `{{ if .validatorPubkey_fancy }}{{ .validatorPubkey_fancy }}{{ end }}`, Inline: true},
				{Name: "Minimum Fee", Value: `{{ if .minimumNodeFee }}{{ percent .minimumNodeFee }}{{ end }}`, Inline: true},
			},
		},
		"odao_proposal_added_event": {
			Title:       "Oracle DAO Proposal Created",
			Description: `{{ .proposer_fancy }} created proposal **#{{ text .proposalID }}**{{ if .message }}: {{ .message }}{{ end }}`,
			Color:       ColorDAO,
		},
		"odao_proposal_vote_event": {
			Title:       "Oracle DAO Vote",
			Description: `{{ .voter_fancy }} voted **{{ .decision }}** on proposal **#{{ text .proposalID }}**`,
			Color:       ColorDAO,
		},
		"odao_proposal_executed_event": {
			Title:       "Oracle DAO Proposal Executed",
			Description: `Proposal **#{{ text .proposalID }}** was executed by {{ .executer_fancy }}`,
			Color:       ColorDAO,
		},
		"odao_proposal_execute_event": {
			Title:       "Oracle DAO Proposal Executed",
			Description: `{{ .from_fancy }} executed proposal **#{{ text .proposalID }}**`,
			Color:       ColorDAO,
		},
		"odao_proposal_invite_event": {
			Title:       "Oracle DAO Invite",
			Description: `{{ .nodeAddress_fancy }} was invited to the Oracle DAO as **{{ .id }}**`,
			Color:       ColorDAO,
		},
		"odao_proposal_leave_event": {
			Title:       "Oracle DAO Departure",
			Description: `{{ .nodeAddress_fancy }} left the Oracle DAO`,
			Color:       ColorDAO,
		},
		"odao_proposal_kick_event": {
			Title:       "Oracle DAO Kick",
			Description: `{{ .nodeAddress_fancy }} was kicked from the Oracle DAO with a **{{ amount .rplFine }} RPL** fine`,
			Color:       ColorBad,
		},
		"pdao_proposal_submitted_event": {
			Title:       "Protocol DAO Proposal Submitted",
			Description: `{{ .proposer_fancy }} submitted proposal **#{{ text .proposalID }}**{{ if .message }}: {{ .message }}{{ end }}`,
			Color:       ColorDAO,
		},
		"pdao_proposal_vote_event": {
			Title:       "Protocol DAO Vote",
			Description: `{{ .voter_fancy }} voted **{{ .decision }}** on proposal **#{{ text .proposalID }}** with **{{ amount .votingPower }}** voting power`,
			Color:       ColorDAO,
		},
		"pdao_proposal_vote_overridden_event": {
			Title:       "Protocol DAO Vote Override",
			Description: `{{ .voter_fancy }} overrode the vote of delegate {{ .delegate_fancy }} on proposal **#{{ text .proposalID }}**{{ if .decision }} with **{{ .decision }}**{{ end }}`,
			Color:       ColorDAO,
		},
		"pdao_proposal_executed_event": {
			Title:       "Protocol DAO Proposal Executed",
			Description: `Proposal **#{{ text .proposalID }}** was executed by {{ .executor_fancy }}`,
			Color:       ColorDAO,
		},
		"pdao_proposal_execute_event": {
			Title:       "Protocol DAO Proposal Executed",
			Description: `{{ .from_fancy }} executed proposal **#{{ text .proposalID }}**`,
			Color:       ColorDAO,
		},
		"pdao_proposal_setting_uint_event": {
			Title:       "Protocol DAO Setting Changed",
			Description: `**{{ .settingPath }}** in **{{ .settingContractName }}** set to **{{ text .value }}**`,
			Color:       ColorDAO,
		},
		"pdao_proposal_setting_bool_event": {
			Title:       "Protocol DAO Setting Changed",
			Description: `**{{ .settingPath }}** in **{{ .settingContractName }}** set to **{{ text .value }}**`,
			Color:       ColorDAO,
		},
		"pdao_proposal_setting_address_event": {
			Title:       "Protocol DAO Setting Changed",
			Description: `**{{ .settingPath }}** in **{{ .settingContractName }}** set to {{ .value_fancy }}`,
			Color:       ColorDAO,
		},
		"pdao_proposal_setting_rewards_claimers_event": {
			Title:       "Protocol DAO Reward Split Changed",
			Description: `Oracle DAO **{{ percent .trustedNodePercent }}**, protocol **{{ percent .protocolPercent }}**, node operators **{{ percent .nodePercent }}**`,
			Color:       ColorDAO,
		},
		"pdao_proposal_security_invite_event": {
			Title:       "Security Council Invite",
			Description: `{{ .memberAddress_fancy }} was invited to the security council as **{{ .id }}**`,
			Color:       ColorDAO,
		},
		"pdao_proposal_security_kick_event": {
			Title:       "Security Council Kick",
			Description: `{{ .memberAddress_fancy }} was removed from the security council`,
			Color:       ColorBad,
		},
		"pdao_proposal_treasury_one_time_spend_event": {
			Title:       "Treasury Spend",
			Description: `**{{ amount .amount }} RPL** sent from the treasury to {{ .recipient_fancy }}{{ if .invoiceID }} (invoice {{ .invoiceID }}){{ end }}`,
			Color:       ColorDAO,
		},
		"reth_ratio_decrease_event": {
			Title:       "rETH Exchange Rate Decrease",
			Description: `The rETH exchange rate dropped from **{{ text .prev_ratio }}** to **{{ text .ratio }}**`,
			Color:       ColorBad,
		},
		"price_update_event": {
			Title:       "RPL Price Update",
			Description: `The Oracle DAO reported an RPL price of **{{ amount .rplPrice }} ETH**`,
			Color:       ColorInfo,
			Fields: []FieldSpec{
				{Name: "Next Update", Value: `{{ if .next_update }}{{ timestamp .next_update }}{{ end }}`, Inline: true},
				{Name: "Rewards Period End", Value: `{{ if .reward_period_end }}{{ timestamp .reward_period_end }}{{ end }}`, Inline: true},
			},
		},
		"rewards_claimed_event": {
			Title:       "Large Rewards Claim",
			Description: `{{ .claimer_fancy }} claimed **{{ amount .amountRPL }} RPL** and **{{ amount .amountETH }} ETH**`,
			Color:       ColorGood,
		},
		"steth_withdrawal_requested_event": {
			Title:       "Large stETH Withdrawal Request",
			Description: `{{ .owner_fancy }} requested a withdrawal of **{{ amount .amountOfStETH }} stETH**{{ if .request_count }} across {{ .request_count }} requests{{ end }}`,
			Color:       ColorWarn,
		},
		"minipool_slash_event": {
			Title:       "Minipool Slashed",
			Description: `Validator {{ .validator_fancy }} of minipool {{ .minipool_fancy }} was slashed for a **{{ .slashing_type }}** violation`,
			Color:       ColorBad,
			Fields: []FieldSpec{
				{Name: "Node", Value: `{{ if .node_fancy }}{{ .node_fancy }}{{ end }}`, Inline: true},
				{Name: "Slasher", Value: `{{ if .slasher_fancy }}{{ .slasher_fancy }}{{ end }}`, Inline: true},
			},
		},
		"mev_proposal_event": {
			Title:       "Large Block Proposal",
			Description: `Validator {{ .validator_fancy }} proposed a block worth **{{ amount .reward }} ETH**`,
			Color:       ColorGood,
			Fields: []FieldSpec{
				{Name: "Node", Value: `{{ if .node_fancy }}{{ .node_fancy }}{{ end }}`, Inline: true},
				{Name: "Relay", Value: `{{ if .relay }}{{ .relay }}{{ end }}`, Inline: true},
			},
		},
		"mev_proposal_smoothie_event": {
			Title:       "Large Smoothing Pool Proposal",
			Description: `Validator {{ .validator_fancy }} proposed a block worth **{{ amount .reward }} ETH** for the smoothing pool`,
			Color:       ColorGood,
			Fields: []FieldSpec{
				{Name: "Node", Value: `{{ if .node_fancy }}{{ .node_fancy }}{{ end }}`, Inline: true},
				{Name: "Relay", Value: `{{ if .relay }}{{ .relay }}{{ end }}`, Inline: true},
			},
		},
		"finality_delay_event": {
			Title:       "Finality Delay",
			Description: `The chain has not finalized for **{{ .delay }}** epochs (current epoch {{ .epoch }})`,
			Color:       ColorBad,
		},
		"finality_delay_recover_event": {
			Title:       "Finality Recovered",
			Description: `Finality delay is back to **{{ .delay }}** epochs (current epoch {{ .epoch }})`,
			Color:       ColorGood,
		},
		"minipool_count": {
			Title:       "Milestone Reached",
			Description: `**{{ amount .result_value }}** active minipools`,
			Color:       ColorGood,
		},
		"node_count": {
			Title:       "Milestone Reached",
			Description: `**{{ amount .result_value }}** registered nodes`,
			Color:       ColorGood,
		},
		"reth_supply": {
			Title:       "Milestone Reached",
			Description: `**{{ amount .result_value }} rETH** in circulation`,
			Color:       ColorGood,
		},
		"snapshot_vote_event": {
			Title:       "Snapshot Vote",
			Description: `{{ .voter_fancy }} voted **{{ .choice }}** with **{{ amount .vp }}** voting power on [{{ .title }}]({{ .link }})`,
			Color:       ColorDAO,
		},
		"snapshot_proposal_start_event": {
			Title:       "Snapshot Vote Started",
			Description: `[{{ .title }}]({{ .link }}) by {{ .author_fancy }} is open until {{ timestamp .end }}`,
			Color:       ColorDAO,
		},
		"snapshot_proposal_end_event": {
			Title:       "Snapshot Vote Ended",
			Description: `[{{ .title }}]({{ .link }}) closed{{ if .winner }}, leading choice **{{ .winner }}**{{ end }}`,
			Color:       ColorDAO,
		},
		"otc_order_event": {
			Title:       "New OTC Order",
			Description: `{{ .owner_fancy }} offers **{{ amount .sell_amount }} {{ .sell_symbol }}** for **{{ amount .buy_amount }} {{ .buy_symbol }}**`,
			Color:       ColorInfo,
		},
	}
}
