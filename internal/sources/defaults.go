package sources

// DefaultLogEvents are the contract events watched on mainnet.
func DefaultLogEvents() []LogEvent {
	return []LogEvent{
		{Contract: "rocketTokenRETH", Event: "Transfer", Name: "reth_transfer_event"},
		{Contract: "rocketTokenRETH", Event: "TokensBurned", Name: "reth_burn_event"},
		{Contract: "rocketTokenRPL", Event: "Transfer", Name: "rpl_transfer_event"},
		{Contract: "rocketDepositPool", Event: "DepositReceived", Name: "pool_deposit_event"},
		{Contract: "rocketDepositPool", Event: "DepositAssigned", Name: "pool_deposit_assigned_event"},
		{Contract: "rocketDAOProposal", Event: "ProposalAdded", Name: "odao_proposal_added_event"},
		{Contract: "rocketDAOProposal", Event: "ProposalVoted", Name: "odao_proposal_vote_event"},
		{Contract: "rocketDAOProposal", Event: "ProposalExecuted", Name: "odao_proposal_executed_event"},
		{Contract: "rocketDAOProtocolProposal", Event: "ProposalSubmitted", Name: "pdao_proposal_submitted_event"},
		{Contract: "rocketDAOProtocolProposal", Event: "ProposalVoted", Name: "pdao_proposal_vote_event"},
		{Contract: "rocketDAOProtocolProposal", Event: "ProposalVoteOverridden", Name: "pdao_proposal_vote_overridden_event"},
		{Contract: "rocketDAOProtocolProposal", Event: "ProposalExecuted", Name: "pdao_proposal_executed_event"},
		{Contract: "rocketNetworkBalances", Event: "BalancesUpdated", Name: "reth_ratio_decrease_event"},
		{Contract: "rocketNetworkPrices", Event: "PricesUpdated", Name: "price_update_event"},
		{Contract: "rocketMerkleDistributorMainnet", Event: "RewardsClaimed", Name: "rewards_claimed_event"},
		{Contract: "lidoWithdrawalQueue", ABI: "unstETH", Event: "WithdrawalRequested", Name: "steth_withdrawal_requested_event"},
	}
}

// DefaultGlobalEvents are emitted by every minipool.
func DefaultGlobalEvents() []LogEvent {
	return []LogEvent{
		{ABI: "rocketMinipoolDelegate", Event: "MinipoolPrestaked", Name: "minipool_prestake_event"},
		{ABI: "rocketMinipoolDelegate", Event: "MinipoolScrubbed", Name: "minipool_scrub_event"},
		{ABI: "rocketMinipoolDelegate", Event: "MinipoolVacancyPrepared", Name: "minipool_vacancy_prepared_event"},
	}
}

// DefaultTxFunctions watches failed node deposits and DAO executions.
// Successful deposits are covered by their own log events.
func DefaultTxFunctions() []TxFunction {
	return []TxFunction{
		{Contract: "rocketNodeDeposit", Function: "deposit", Name: "minipool_deposit_failed_event", OnlyReverted: true},
		{Contract: "rocketDAONodeTrustedProposals", Function: "execute", Name: "odao_proposal_execute_event"},
		{Contract: "rocketDAOProtocolProposal", Function: "execute", Name: "pdao_proposal_execute_event"},
	}
}

func DefaultPayloadRules() []PayloadRule {
	return []PayloadRule{
		{Contract: "rocketDAONodeTrustedProposals", Function: "execute", Getter: "rocketDAOProposal", ABI: "rocketDAONodeTrustedProposals", Prefix: "odao_"},
		{Contract: "rocketDAOProtocolProposal", Function: "execute", Getter: "rocketDAOProtocolProposal", ABI: "rocketDAOProtocolProposals", Prefix: "pdao_"},
	}
}
