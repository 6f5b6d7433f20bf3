package bundler

// Account-Abstraction JSON-RPC methods forwarded verbatim to the bundler.
const (
	MethodChainID                 = "eth_chainId"
	MethodSendUserOperation       = "eth_sendUserOperation"
	MethodEstimateUserOpGas       = "eth_estimateUserOperationGas"
	MethodGetUserOperationReceipt = "eth_getUserOperationReceipt"
	MethodGetUserOperationByHash  = "eth_getUserOperationByHash"
	MethodSupportedEntryPoints    = "eth_supportedEntryPoints"
	MethodClientVersion           = "web3_clientVersion"

	MethodDebugClearState      = "debug_bundler_clearState"
	MethodDebugDumpMempool     = "debug_bundler_dumpMempool"
	MethodDebugSendBundleNow   = "debug_bundler_sendBundleNow"
	MethodDebugSetBundlingMode = "debug_bundler_setBundlingMode"
	MethodDebugSetReputation   = "debug_bundler_setReputation"
	MethodDebugDumpReputation  = "debug_bundler_dumpReputation"
)

// Methods lists every method the client forwards.
func Methods() []string {
	return []string{
		MethodChainID,
		MethodSendUserOperation,
		MethodEstimateUserOpGas,
		MethodGetUserOperationReceipt,
		MethodGetUserOperationByHash,
		MethodSupportedEntryPoints,
		MethodClientVersion,
		MethodDebugClearState,
		MethodDebugDumpMempool,
		MethodDebugSendBundleNow,
		MethodDebugSetBundlingMode,
		MethodDebugSetReputation,
		MethodDebugDumpReputation,
	}
}

// IsBundlerMethod reports whether the client forwards the given method.
func IsBundlerMethod(method string) bool {
	for _, m := range Methods() {
		if m == method {
			return true
		}
	}
	return false
}
