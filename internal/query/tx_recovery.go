package query

import "context"

// recoverCurrentTxInfo implements spec.md §4.5's recover_current_tx_info:
// it queries the two temporary recovery tables, decodes config values via
// the compiler, and applies the assembled (aliases, config, sp_id) to the
// view via whichever of RollbackTxToSavepoint/RecoverAliasesAndConfig
// matches the view's current transaction state.
func recoverCurrentTxInfo(ctx context.Context, s *Session) error {
	rows, err := s.Backend.QueryState(ctx)
	if err != nil {
		return err
	}

	aliases := map[string]string{}
	config := map[string]any{}
	var savepointID string

	for _, row := range rows {
		switch row.Type {
		case 'A':
			aliases[row.Name] = row.Value
		case 'C':
			val, err := s.Compiler.SettingValFromEQL(ctx, row.Name, row.Value)
			if err != nil {
				return err
			}
			config[row.Name] = val
		case 'S':
			savepointID = row.Value
		}
	}

	if s.View.InTransaction() {
		s.View.RollbackTxToSavepoint(savepointID, aliases, config)
	} else {
		s.View.RecoverAliasesAndConfig(aliases, config)
	}

	return nil
}
